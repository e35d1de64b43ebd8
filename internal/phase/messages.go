package phase

type Language string

const (
	Hebrew  Language = "he"
	English Language = "en"
)

var messages = map[string]map[Language]string{
	"phase.safe":               {Hebrew: "אין התראה פעילה באזור", English: "No active alert in the area"},
	"phase.earlyWarning":       {Hebrew: "התרעה מוקדמת", English: "Early Warning"},
	"phase.yellow":             {Hebrew: "הזמן להגעה למרחב מוגן מוגבל", English: "Limited time to reach shelter"},
	"phase.orange":             {Hebrew: "הזמן המוערך מתקצר", English: "Time is running short"},
	"phase.red":                {Hebrew: "הזמן המוערך הסתיים", English: "Estimated time has ended"},
	"phase.critical":           {Hebrew: "הישאר במקום והתכופף", English: "Stay in place and brace yourself"},
	"phase.sheltering":         {Hebrew: "מומלץ להישאר במרחב מוגן", English: "Recommended to stay in shelter"},
	"phase.canExit":            {Hebrew: "ניתן לצאת מהמרחב המוגן", English: "You may exit the shelter"},
	"instruction.earlyWarning": {Hebrew: "יש להיכנס למרחב מוגן בהקדם", English: "Enter shelter as soon as possible"},
	"instruction.yellow":       {Hebrew: "מומלץ לפעול ברוגע ובשיקול דעת", English: "Act calmly and thoughtfully"},
	"instruction.orange":       {Hebrew: "מומלץ לפעול בהתאם להנחיות פיקוד העורף", English: "Follow Home Front Command instructions"},
	"instruction.red":          {Hebrew: "יש לפעול לפי הנחיות פיקוד העורף", English: "Follow Home Front Command instructions"},
	"instruction.critical":     {Hebrew: "התכופף, הגן על הראש, התרחק מחלונות", English: "Crouch down, protect your head, stay away from windows"},
	"instruction.sheltering":   {Hebrew: "יש להמתין להודעת פיקוד העורף לפני יציאה", English: "Wait for Home Front Command announcement before exiting"},
	"instruction.canExit":      {Hebrew: "ההתראה הסתיימה לפי פיקוד העורף", English: "Alert ended per Home Front Command"},
	"voice.enterShelter":       {Hebrew: "יש להיכנס למרחב מוגן", English: "Enter the shelter"},
	"voice.braceYourself":      {Hebrew: "הישאר במקום והתכופף. הגן על הראש", English: "Stay in place and brace yourself. Protect your head"},
	"voice.earlyWarning":       {Hebrew: "התרעה מוקדמת. יש להתכונן להיכנס למרחב מוגן", English: "Early warning. Prepare to enter shelter"},
	"voice.earlyWarningEnded":  {Hebrew: "ההתרעה המוקדמת הסתיימה", English: "The early warning has ended"},
	"voice.canExit":            {Hebrew: "ניתן לצאת מהמרחב המוגן", English: "You may exit the shelter"},
}

// Message resolves a key, falling back to Hebrew and then to the key itself.
func Message(key string, lang Language) string {
	m, ok := messages[key]
	if !ok {
		return key
	}
	if s, ok := m[lang]; ok {
		return s
	}
	if s, ok := m[Hebrew]; ok {
		return s
	}
	return key
}
