// Package gemini implements the analysis.Analyzer interface on top of
// Google's Gemini API. It renders a per-task-type prompt, makes a single
// GenerateContent call, and tags failures as transient or permanent for the
// retry classifier.
package gemini
