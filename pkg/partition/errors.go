package partition

import (
	"fmt"
)

// MaxNameLength is the number of UTF-16 code units a GPT entry name can hold.
const MaxNameLength = 36

type InvalidNameError struct {
	Name  string
	Units int
}

func (e InvalidNameError) Error() string {
	if e.Units == 0 {
		return "partition name must not be empty"
	}

	return fmt.Sprintf("partition name %q has %d UTF-16 code units, maximum is %d", e.Name, e.Units, MaxNameLength)
}

type InsufficientCapacityError struct {
	Sectors  uint64
	Required uint64
}

func (e InsufficientCapacityError) Error() string {
	return fmt.Sprintf("device has %d sectors, at least %d are required", e.Sectors, e.Required)
}

type PartitionNotFoundError struct {
	Name string
}

func (e PartitionNotFoundError) Error() string {
	return fmt.Sprintf("partition %q not found", e.Name)
}

// TableCorruptError is returned when the on-disk table fails validation, for
// example after a table write was interrupted.
type TableCorruptError struct {
	Reason string
	Err    error
}

func (e TableCorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partition table is corrupt: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("partition table is corrupt: %s", e.Reason)
}

func (e TableCorruptError) Unwrap() error {
	return e.Err
}

func corrupt(format string, args ...any) TableCorruptError {
	return TableCorruptError{Reason: fmt.Sprintf(format, args...)}
}
