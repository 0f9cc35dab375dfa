// Package region provides the arena that owns a module's backing memory.
//
// Loading a module creates its region and adopts the interpreted instance;
// compiling the module adopts the native artifact into the same region.
// Freeing the region releases both, which is why published native function
// pointers are only valid while the region is alive.
package region
