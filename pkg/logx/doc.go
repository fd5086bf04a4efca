// Package logx is diarybot's structured logging layer.
//
// A small wrapper (logx.Logger) on top of zerolog keeps console output
// readable, file output JSON-structured, and forwards important records
// to an operator chat through the alert sink (min-level + rate limiting).
package logx
