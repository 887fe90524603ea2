package spdkio

// noCopy flags values that must not be copied after first use to go
// vet's copylocks check.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
