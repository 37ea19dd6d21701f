// Package main is the entry point for the news bias analysis pipeline: a
// crash-safe batch pipeline that submits news documents to an asynchronous
// inference provider, ingests scored entity mentions, and recovers from
// interruptions at any point.
package main

import "github.com/jsvan/news-bias-analyzer-v2-sub001/cmd"

func main() {
	cmd.Execute()
}
