package form

// FieldEntry is one populated target field with its provenance.
type FieldEntry struct {
	Value       Value   `json:"value"`
	Source      string  `json:"source,omitempty"`
	Confidence  float64 `json:"confidence"`
	Required    bool    `json:"required"`
	DataType    string  `json:"data_type,omitempty"`
	RuleDerived bool    `json:"rule_derived,omitempty"`
}

// ConditionalStats summarizes one rule-evaluation pass.
type ConditionalStats struct {
	RulesEvaluated    int `json:"rules_evaluated"`
	RulesTriggered    int `json:"rules_triggered"`
	LLMInferences     int `json:"llm_inferences"`
	RequirementsAdded int `json:"requirements_added"`
	ValuesSet         int `json:"values_set"`
}

// GenerationRecord describes the PDF produced for a populated form.
type GenerationRecord struct {
	OutputPath       string `json:"output_path"`
	GenerationMethod string `json:"generation_method"`
	FileSize         int64  `json:"file_size"`
	FieldsIncluded   int    `json:"fields_included"`
	FieldsFilled     int    `json:"fields_filled"`
}

// FormMetadata carries population quality metrics alongside the field data.
type FormMetadata struct {
	SchemaName          string             `json:"schema_name"`
	SchemaVersion       string             `json:"schema_version,omitempty"`
	PopulatedFields     int                `json:"populated_fields_count"`
	TotalFields         int                `json:"total_fields_count"`
	CompletionRate      float64            `json:"completion_rate"`
	MissingFields       []string           `json:"missing_fields"`
	ConfidenceScores    map[string]float64 `json:"confidence_scores"`
	ConditionalLogic    *ConditionalStats  `json:"conditional_logic,omitempty"`
	ConditionalNotes    []string           `json:"conditional_notes,omitempty"`
	PDFGeneration       *GenerationRecord  `json:"pdf_generation,omitempty"`
}

// FormSection mirrors a schema section with its fields resolved against the
// populated data, for presentation in the final document. TotalFields counts
// the fields the schema declares for the section; PopulatedFields counts the
// resolved ones that hold a value.
type FormSection struct {
	Title           string   `json:"title"`
	Fields          []string `json:"fields"`
	PopulatedFields int      `json:"populated_fields"`
	TotalFields     int      `json:"total_fields"`
}

// PopulatedForm is the engine's output: target field entries plus metadata.
type PopulatedForm struct {
	Fields   map[string]*FieldEntry `json:"fields"`
	Sections map[string]FormSection `json:"sections,omitempty"`
	Metadata FormMetadata           `json:"metadata"`
}
