// Package model lists the chat models the assistant is used with and their
// token prices, so a run's usage can be reported as an estimated cost.
//
//	m, ok := model.Lookup("qwen-flash")
//	if ok {
//	    fmt.Printf("$%.4f\n", m.Cost(result.Usage))
//	}
//
// Prices are USD per million tokens and change over time; unknown models
// simply have no estimate.
package model
