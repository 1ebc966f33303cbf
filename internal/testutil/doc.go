// Package testutil holds fixtures shared by package tests: tables of
// bound variables, model directories on disk and a run id generator that
// never runs out.
package testutil
