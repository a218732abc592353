package questionnaire

// catalogue lists every questionnaire the registry knows about.
//
// Items are listed in question order: item p (1-based) is matched against the
// QuestionScore whose QuestionNumber is p. Scores lists the category names to
// extract as summary fields.
var catalogue = []Definition{
	{
		Name: "Anxiety (GAD-7)",
		Code: "gad7",
		Items: []string{
			"anxious",
			"uncontrollable_worrying",
			"excessive_worrying",
			"relaxing",
			"restless",
			"irritable",
			"afraid",
			"difficult",
		},
		Scores:   []string{"Total"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "AQ-10 Autistm Spectrum Quotient (AQ)",
		Code: "aq10",
		Items: []string{
			"sounds",
			"holism",
			"multitasking",
			"task_switching",
			"social_inference",
			"detect_boredom",
			"intentions_story",
			"collections",
			"facial_emotions",
			"intentions_real",
		},
		Scores:   []string{"Total"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Adult ADHD Self-Report Scale (ASRS-v1.1) Symptom Checklist Instructions",
		Code: "asrs",
		Items: []string{
			"completing",
			"preparing",
			"remembering",
			"procrastination",
			"fidgeting",
			"overactivity",
			"carelessness",
			"attention",
			"concentration",
			"misplacing",
			"distracted",
			"standing",
			"restlessness",
			"not_relaxing",
			"loquacity",
			"finishing_sentences",
			"queueing",
			"interrupting",
		},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Alcohol use disorders identification test (AUDIT)",
		Code: "audit",
		Items: []string{
			"frequency",
			"units",
			"binge_frequency",
			"cant_stop",
			"incapacitated",
			"morning_drink",
			"guilt",
			"memory_loss",
			"injuries",
			"concern",
		},
		Scores: []string{
			"Low Risk",
			"Increased Risk",
			"Higher Risk",
			"Possible Dependence",
		},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Brooding subscale of Ruminative Response Scale",
		Code: "brss",
		Items: []string{
			"deserve",
			"react",
			"regret",
			"why_me",
			"handle",
		},
		Scores:   []string{"Scoring 1"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Demographics",
		Code: "demo",
		Items: []string{
			"disabled",
			"long_term_condition",
			"national_identity",
			"national_identity_other",
			"ethnicity",
			"ethnicity_asian_detail",
			"ethnicity_asian_other",
			"ethnicity_black_detail",
			"ethnicity_black_other",
			"ethnicity_mixed_detail",
			"ethnicity_mixed_other",
			"ethnicity_white_detail",
			"ethnicity_white_other",
			"ethnicity_other_detail",
			"ethnicity_other_other",
			"religion",
			"religion_other",
			"sex",
			"gender",
			"gender_other",
			"trans",
			"sexuality",
			"sexuality_other",
			"relationship",
			"relationship_other",
			"caring",
			"employment",
			"employment_other",
			"education",
			"education_other",
		},
		Strategy: StrategyDisplayValues,
		Repeat:   true,
	},
	{
		Name: "Depression (PHQ-9)",
		Code: "phq9",
		Items: []string{
			"interest",
			"depression",
			"sleep",
			"lack_of_energy",
			"appetite",
			"view_of_self",
			"concentration",
			"movements",
			"self_harm",
		},
		Scores:   []string{"Total"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Drug use disorders identification test (DUDIT)",
		Code: "dudit",
		Items: []string{
			"frequency",
			"multiple",
			"frequency_day",
			"influence",
			"longing",
			"cant_stop",
			"incapacitated",
			"morning_drug",
			"guilt",
			"injury",
			"concern",
		},
		Scores:   []string{"Scoring"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Mania (Altman)",
		Code: "mania",
		Items: []string{
			"happiness",
			"confidence",
			"sleep",
			"talking",
			"activity",
		},
		Scores:   []string{"Total"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name:     "MENTAL HEALTH MISSION MOOD DISORDER COHORT STUDY - Patient Information Sheet & Informed Consent Form",
		Code:     "consent",
		Strategy: StrategyConsent,
		Repeat:   false,
	},
	{
		Name: "Positive Valence Systems Scale, 21 items (PVSS-21)",
		Code: "pvss",
		Items: []string{
			"savour",
			"activities",
			"fresh_air",
			"social_time",
			"weekend",
			"touch",
			"outdoors",
			"feedback",
			"meals",
			"praise",
			"social_time",
			"goals",
			"hug",
			"fun",
			"hard_work",
			"meal",
			"achievements",
			"hug_afterglow",
			"mastery",
			"activities",
			"beauty",
		},
		Scores: []string{
			"Food",
			"Physical Touch",
			"Outdoors",
			"Positive Feedback",
			"Hobbies",
			"Social Interactions",
			"Goals",
			"Reward Valuation",
			"Reward Expectancy",
			"Effort Valuation",
			"Reward Aniticipation",
			"Initial Responsiveness",
			"Reward Satiation",
		},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "ReQoL 10",
		Code: "reqol10",
		Items: []string{
			"everyday_tasks",
			"trust_others",
			"unable_to_cope",
			"do_wanted_things",
			"felt_happy",
			"not_worth_living",
			"enjoyed",
			"felt_hopeful",
			"felt_lonely",
			"confident_in_self",
			"physical_health",
		},
		Scores:   []string{"Total"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Standardised Assessment of Personality - Abbreviated Scale (Moran)",
		Code: "sapas",
		Items: []string{
			"friends",
			"loner",
			"trust",
			"temper",
			"impulsive",
			"worry",
			"dependent",
			"perfectionist",
		},
		Scores:   []string{"Scoring 1"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
	{
		Name: "Work and Social Adjustment Scale",
		Code: "wsas",
		Items: []string{
			"work",
			"management",
			"social_leisure",
			"private_leisure",
			"family",
		},
		Scores:   []string{"Total"},
		Strategy: StrategyScores,
		Repeat:   true,
	},
}
