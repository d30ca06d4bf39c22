// Package llm contains adapters for invoking large language models. The
// agent uses it to turn a rendered content prompt into draft copy.
package llm
