package cmd

var (
	Run                   = run
	ValidateConfiguration = validateConfiguration
)
