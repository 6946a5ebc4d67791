package interview

import "strings"

// Report section headings, in order. The report prompt and the placeholder
// report both use exactly these.
var reportSections = []string{
	"Chief Complaint",
	"History of Present Illness",
	"Vitals",
	"Probable Diagnosis",
	"Recommendations",
}

// BuildSystemPrompt returns the system instruction that drives the
// one-question-at-a-time interview for the given language.
func BuildSystemPrompt(language Language) string {
	var b strings.Builder
	b.WriteString("You are a clinical intake assistant conducting a patient interview. ")
	b.WriteString("Ask exactly one clinically relevant question at a time, building on the patient's previous answers. ")
	b.WriteString(`Respond with ONLY a JSON object of the shape {"question": string, "done": boolean}. `)
	b.WriteString(`When you have enough information to summarize the case, respond with {"question": "", "done": true}. `)
	b.WriteString("Do not include greetings, explanations, markdown, or code fences. ")
	if language == LanguageBangla {
		b.WriteString("Write the question text in Bangla (বাংলা). ")
	} else {
		b.WriteString("Write the question text in English. ")
	}
	b.WriteString("Keep every question short and answerable by a layperson.")
	return b.String()
}

// BuildReportPrompt returns the one-shot instruction appended to the full
// conversation when synthesizing the intake report.
func BuildReportPrompt(language Language) string {
	var b strings.Builder
	b.WriteString("The interview is complete. Write a clinical intake report as markdown with exactly these sections: ")
	b.WriteString(strings.Join(reportSections, ", "))
	b.WriteString(". ")
	b.WriteString(`Respond with ONLY a JSON object of the shape {"report": "<markdown>"}. `)
	b.WriteString("Use \"N/A\" for any section the conversation does not cover. ")
	if language == LanguageBangla {
		b.WriteString("Write the report body in Bangla (বাংলা), keeping the section headings in English.")
	} else {
		b.WriteString("Write the report body in English.")
	}
	return b.String()
}

// PlaceholderReport is the degrade-path report used when the model's output
// cannot be parsed or carries no report text.
func PlaceholderReport(language Language) string {
	na := "N/A"
	if language == LanguageBangla {
		na = "প্রযোজ্য নয়"
	}
	var b strings.Builder
	for i, section := range reportSections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(section)
		b.WriteString("\n")
		b.WriteString(na)
	}
	return b.String()
}
