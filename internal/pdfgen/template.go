// Package pdfgen produces the final authorization document through a chain
// of increasingly degraded strategies: direct AcroForm template fill, a
// hybrid overlay appended to the template, and a fresh data-only document.
package pdfgen

import (
	"fmt"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FillStats summarizes one template-fill attempt.
type FillStats struct {
	FieldsFound    int      `json:"fields_found"`
	FieldsFilled   int      `json:"fields_filled"`
	FieldsSkipped  int      `json:"fields_skipped"`
	FieldsMissing  []string `json:"fields_missing,omitempty"`
	CompletionRate float64  `json:"completion_rate"`
}

type fieldKind int

const (
	kindText fieldKind = iota
	kindCheckbox
	kindRadio
	kindChoice
	kindSignature
	kindUnknown
)

// checkedValues are the spellings that check a checkbox field.
var checkedValues = map[string]bool{
	"yes": true, "true": true, "1": true, "checked": true, "on": true,
}

// fillTemplate writes values into the template's AcroForm fields and saves
// the result to outputPath. Fields whose names have no populated value are
// left untouched and reported in the stats.
func fillTemplate(templatePath string, values map[string]string, outputPath string) (*FillStats, error) {
	file, err := os.Open(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open template: %w", err)
	}
	defer file.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(file, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, fmt.Errorf("template has no AcroForm dictionary")
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return nil, fmt.Errorf("failed to dereference AcroForm: %w", err)
	}
	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, fmt.Errorf("template AcroForm has no Fields array")
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	stats := &FillStats{}
	for _, fieldRef := range fieldsArray {
		fieldDict, err := ctx.DereferenceDict(fieldRef)
		if err != nil || fieldDict == nil {
			continue
		}
		stats.FieldsFound++

		name := fieldName(ctx, fieldDict)
		value, ok := values[name]
		if !ok || strings.TrimSpace(value) == "" {
			stats.FieldsSkipped++
			stats.FieldsMissing = append(stats.FieldsMissing, name)
			continue
		}

		if setFieldValue(ctx, fieldDict, value) {
			stats.FieldsFilled++
		} else {
			stats.FieldsSkipped++
		}
	}

	// Viewers regenerate widget appearances from the values we set.
	acroFormDict["NeedAppearances"] = types.Boolean(true)

	if stats.FieldsFound > 0 {
		stats.CompletionRate = float64(stats.FieldsFilled) / float64(stats.FieldsFound)
	}

	if err := api.WriteContextFile(ctx, outputPath); err != nil {
		return nil, fmt.Errorf("failed to write filled PDF: %w", err)
	}
	return stats, nil
}

func fieldName(ctx *model.Context, fieldDict types.Dict) string {
	if nameObj, found := fieldDict.Find("T"); found {
		if name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil {
			return name
		}
	}
	return ""
}

// setFieldValue writes the value in the representation the field's type
// expects. Signature and pushbutton fields are never written.
func setFieldValue(ctx *model.Context, fieldDict types.Dict, value string) bool {
	switch resolveFieldKind(ctx, fieldDict) {
	case kindText, kindChoice:
		fieldDict["V"] = types.StringLiteral(value)
		return true
	case kindCheckbox:
		state := "Off"
		if checkedValues[strings.ToLower(strings.TrimSpace(value))] {
			state = "Yes"
		}
		fieldDict["V"] = types.Name(state)
		fieldDict["AS"] = types.Name(state)
		return true
	case kindRadio:
		fieldDict["V"] = types.Name(strings.TrimSpace(value))
		return true
	default:
		return false
	}
}

// resolveFieldKind maps the field's FT entry (inherited from the parent when
// absent) to a fill strategy. Button fields split into checkbox, radio, and
// pushbutton on the Ff flag bits.
func resolveFieldKind(ctx *model.Context, fieldDict types.Dict) fieldKind {
	ftObj, found := fieldDict.Find("FT")
	if !found {
		if parentObj, found := fieldDict.Find("Parent"); found {
			if parentDict, err := ctx.DereferenceDict(parentObj); err == nil && parentDict != nil {
				return resolveFieldKind(ctx, parentDict)
			}
		}
		return kindUnknown
	}

	ftName, err := ctx.DereferenceName(ftObj, model.V10, nil)
	if err != nil {
		return kindUnknown
	}

	switch ftName {
	case "Tx":
		return kindText
	case "Ch":
		return kindChoice
	case "Sig":
		return kindSignature
	case "Btn":
		if flagsObj, found := fieldDict.Find("Ff"); found {
			if flags, err := ctx.DereferenceInteger(flagsObj); err == nil && flags != nil {
				if (*flags & (1 << 15)) != 0 { // radio
					return kindRadio
				}
				if (*flags & (1 << 16)) != 0 { // pushbutton
					return kindUnknown
				}
			}
		}
		return kindCheckbox
	default:
		return kindUnknown
	}
}
