package common

//go:generate enumer -json -type Status -trimprefix Status

// Status of a scene job
type Status int

const (
	StatusNEW Status = iota
	StatusPENDING
	StatusDONE
	StatusFAILED
	StatusRETRY
)
