/*
 * Copyright 2026 The PawSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package validation validates document ids and collection field values
// against per-collection rules.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

const docIDRegexString = "^[a-zA-Z0-9][a-zA-Z0-9-._~:]{0,119}$"

var (
	docIDRegex = regexp.MustCompile(docIDRegexString)

	// ErrDocIDInvalid is returned when a document id does not match the
	// allowed character set.
	ErrDocIDInvalid = errors.New("id should start alphanumeric and contain only alphanumeric, -, ., _, ~, :")

	defaultValidator = validator.New()
	defaultEn        = en.New()
	uni              = ut.New(defaultEn, defaultEn)

	trans, _ = uni.GetTranslator(defaultEn.Locale())
)

// StructError is returned when a value fails a validation rule.
type StructError struct {
	Field string
	Tag   string
	Err   error
}

// Error returns the translated message of the failed rule.
func (e StructError) Error() string {
	return e.Err.Error()
}

func registerValidation(tag string, fn validator.Func) {
	if err := defaultValidator.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

func registerTranslation(tag, msg string) {
	if err := defaultValidator.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		if err := ut.Add(tag, msg, true); err != nil {
			return fmt.Errorf("add translation: %w", err)
		}
		return nil
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T(tag, fe.Field())
		return t
	}); err != nil {
		panic(err)
	}
}

// ValidateValue validates a single value with the given rule tag.
func ValidateValue(v interface{}, tag string) error {
	if err := defaultValidator.Var(v, tag); err != nil {
		for _, e := range err.(validator.ValidationErrors) {
			return StructError{
				Tag: e.Tag(),
				Err: errors.New(e.Translate(trans)),
			}
		}
	}

	return nil
}

// ValidateFields validates a document's fields against per-field rule tags,
// e.g. {"name": "required,min=1"}. Fields without a rule are accepted as-is.
// The returned error lists every failed field in deterministic order.
func ValidateFields(fields map[string]interface{}, rules map[string]interface{}) error {
	if len(rules) == 0 {
		return nil
	}

	failed := defaultValidator.ValidateMap(fields, rules)
	if len(failed) == 0 {
		return nil
	}

	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)

	var msgs []string
	for _, name := range names {
		switch err := failed[name].(type) {
		case validator.ValidationErrors:
			for _, fe := range err {
				msgs = append(msgs, fmt.Sprintf("%s: %s", name, fe.Translate(trans)))
			}
		case error:
			msgs = append(msgs, fmt.Sprintf("%s: %s", name, err))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: invalid value", name))
		}
	}

	return fmt.Errorf("validate fields: %s", strings.Join(msgs, "; "))
}

// ValidateDocID validates the given document id.
func ValidateDocID(id string) error {
	return ValidateValue(id, "docid")
}

func init() {
	registerValidation("docid", func(v validator.FieldLevel) bool {
		return docIDRegex.MatchString(v.Field().String())
	})

	registerTranslation("docid", ErrDocIDInvalid.Error())
}
