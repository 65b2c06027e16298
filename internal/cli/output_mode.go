package cli

type outputMode int

const (
	outputModeText outputMode = iota
	outputModeJSON
)

func (m outputMode) isJSON() bool {
	return m == outputModeJSON
}

func outputModeFor(jsonOutput bool) outputMode {
	if jsonOutput {
		return outputModeJSON
	}
	return outputModeText
}
