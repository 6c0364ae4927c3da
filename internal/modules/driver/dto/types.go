package dto

import "time"

type DriverInfo struct {
	Name         string
	Version      string
	Enabled      bool
	Binary       string
	Capabilities []string
}

type DoctorResult struct {
	Name            string
	ChecksumValid   bool
	BinaryReachable bool
	LifecycleOK     bool
	Error           string
}

type MetadataOutput struct {
	Name         string
	Version      string
	Capabilities []string
}

type PermissionInput struct {
	Driver     string
	Permission string
}

type PermissionOutput struct {
	Driver     string
	Permission string
	Granted    bool
}

type ReadSamplesInput struct {
	Driver string
	Cursor string
	Max    int
}

type SampleOutput struct {
	At        time.Time
	Kind      string
	RawSteps  int64
	Lat       float64
	Lon       float64
	AccuracyM float64
}

type ReadSamplesOutput struct {
	Samples    []SampleOutput
	NextCursor string
	Exhausted  bool
}
