// Package domain contains the core types for the survey session lifecycle:
// in-progress sessions and their status graph, answer values and their merge
// semantics, finalized submissions, and the store/cache contracts the
// application layer depends on.
package domain
