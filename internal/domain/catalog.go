package domain

// DefaultCatalog returns the onboarding questionnaire seeded into new deployments.
// IDs are left blank; loaders and the seed command assign them.
func DefaultCatalog() []Question {
	return []Question{
		{
			FieldKey:    "full_name",
			DisplayText: "What is your full name?",
			Order:       1,
			InputType:   InputText,
			HelpText:    strPtr("We use this to personalize the conversation."),
			IsActive:    true,
		},
		{
			FieldKey:    "email",
			DisplayText: "What is the best email to reach you?",
			Order:       2,
			InputType:   InputEmail,
			HelpText:    strPtr("We will only use it for follow-ups related to this project."),
			IsActive:    true,
		},
		{
			FieldKey:    "company",
			DisplayText: "What company or organization do you represent?",
			Order:       3,
			InputType:   InputText,
			IsActive:    true,
		},
		{
			FieldKey:    "team_size",
			DisplayText: "How large is your team?",
			Order:       4,
			InputType:   InputNumber,
			HelpText:    strPtr("Approximate number of people involved is fine."),
			IsActive:    true,
		},
		{
			FieldKey:    "project_goal",
			DisplayText: "What is the primary goal for this project?",
			Order:       5,
			InputType:   InputText,
			IsActive:    true,
		},
	}
}

func strPtr(s string) *string { return &s }
