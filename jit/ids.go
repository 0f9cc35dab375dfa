package jit

import "fmt"

// ModuleID names a module in the manager's module registry.
type ModuleID uint32

// RegionID names a region in the manager's region registry.
type RegionID uint32

// Reservation is what AddModule hands back: the two ids under which the
// caller later transfers the module and its region.
type Reservation struct {
	ModuleID ModuleID
	RegionID RegionID
}

func (r Reservation) String() string {
	return fmt.Sprintf("module#%d/region#%d", r.ModuleID, r.RegionID)
}
