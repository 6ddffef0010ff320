package generate

import (
	"fmt"
	"strings"
)

func buildPrompt(question, schemaText, memoryContext string, rules *Rules) string {
	var b strings.Builder

	b.WriteString("You are a SQL generator for a Trino data warehouse.\n\n")
	b.WriteString("Available schema:\n")
	if schemaText == "" {
		b.WriteString("(no schema information available)\n")
	} else {
		b.WriteString(schemaText)
	}

	if memoryContext != "" {
		b.WriteString(memoryContext)
		b.WriteString("\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString(rules.Render())

	fmt.Fprintf(&b, "\nQuestion: %s\n\nSQL:", question)

	return b.String()
}

func buildCorrectivePrompt(question, previous, failure, schemaText string, rules *Rules) string {
	var b strings.Builder

	b.WriteString("The previous SQL statement was rejected.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	if previous != "" {
		fmt.Fprintf(&b, "Rejected statement:\n%s\n\n", previous)
	}
	fmt.Fprintf(&b, "Rejection reason: %s\n\n", failure)

	b.WriteString("Available schema:\n")
	if schemaText == "" {
		b.WriteString("(no schema information available)\n")
	} else {
		b.WriteString(schemaText)
	}

	b.WriteString("\nRules:\n")
	b.WriteString(rules.Render())

	b.WriteString("\nReturn a corrected SQL statement.\n\nSQL:")

	return b.String()
}
