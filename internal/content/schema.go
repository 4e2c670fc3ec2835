package content

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/question.schema.json
var questionSchemaJSON string

var (
	questionSchemaOnce sync.Once
	questionSchema     *gojsonschema.Schema
	questionSchemaErr  error
)

func loadQuestionSchema() (*gojsonschema.Schema, error) {
	questionSchemaOnce.Do(func() {
		questionSchema, questionSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(questionSchemaJSON))
	})
	return questionSchema, questionSchemaErr
}

// ValidateQuestionJSON checks the shape of a raw question payload before it
// is decoded. Option and answer rules are left to ValidateQuestion.
func ValidateQuestionJSON(raw []byte) error {
	schema, err := loadQuestionSchema()
	if err != nil {
		return fmt.Errorf("load question schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return schemaViolation(KindQuestion, "", ViolationInvalidPayload, "payload is not valid JSON")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	return schemaViolation(KindQuestion, "", ViolationInvalidPayload, strings.Join(msgs, "; "))
}
