package phase

// Treatment is how a phase is presented. Keys index the message catalog.
type Treatment struct {
	Color          string // ANSI SGR color code
	TextKey        string
	InstructionKey string
}

var treatments = map[Phase]Treatment{
	Safe:         {Color: "32", TextKey: "phase.safe"},
	EarlyWarning: {Color: "35", TextKey: "phase.earlyWarning", InstructionKey: "instruction.earlyWarning"},
	Critical:     {Color: "1;31", TextKey: "phase.critical", InstructionKey: "instruction.critical"},
	Yellow:       {Color: "33", TextKey: "phase.yellow", InstructionKey: "instruction.yellow"},
	Orange:       {Color: "38;5;208", TextKey: "phase.orange", InstructionKey: "instruction.orange"},
	Red:          {Color: "31", TextKey: "phase.red", InstructionKey: "instruction.red"},
	Sheltering:   {Color: "34", TextKey: "phase.sheltering", InstructionKey: "instruction.sheltering"},
	CanExit:      {Color: "32", TextKey: "phase.canExit", InstructionKey: "instruction.canExit"},
}

func TreatmentFor(p Phase) Treatment {
	if t, ok := treatments[p]; ok {
		return t
	}
	return treatments[Safe]
}
