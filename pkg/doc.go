// Package pkg provides the core libraries for certforge certificate generation.
//
// # Overview
//
// Certforge turns a certificate design and a recipient list into
// personalized PNG certificates queued for email delivery. The pkg
// directory is organized into four main areas:
//
//  1. [cert] - Domain model and rendering (placeholders, layout, compositing)
//  2. [batch] - Orchestration (parse recipients → render → submit)
//  3. [queue] - Delivery (queue stores, webhook sender)
//  4. Infrastructure - [assets], [cache], [fonts], [httputil], [errors], [observability]
//
// # Architecture
//
// The typical data flow through certforge:
//
//	Design file + Recipient list
//	         ↓
//	    [batch] package (parse and validate recipients)
//	         ↓
//	    [cert/compose] package (substitute placeholders, lay out text, draw)
//	         ↓
//	    [queue] package (persist as pending emails)
//	         ↓
//	    Webhook delivery
//
// # Quick Start
//
// Render a batch programmatically:
//
//	design, err := cert.LoadDesign("design.json")
//	if err != nil { ... }
//	recipients, err := batch.ParseRecipients(data)
//	if err != nil { ... }
//
//	store := queue.NewMemoryStore()
//	runner := batch.NewRunner(design, assets.NewLoader(), queue.NewStoreSink(store))
//	result, err := runner.Run(ctx, recipients)
package pkg
