// Package browser holds the pieces shared by every page driver: page
// handles, the in-page probe/state/write scripts, and the Go-side logic that
// turns an element's state into a write plan or a read-back verdict.
//
// # Drivers
//
// Three drivers implement page.Driver on top of this package:
//
//  1. playwright: the default live driver, built on playwright-go
//  2. rod: a Chrome DevTools driver that can attach to a remote Chrome
//  3. static: an offline driver over an HTML document, used for dry runs
//
// The live drivers run ProbeScript and StateScript inside the page and
// decode the JSON they return with DecodeCandidates and DecodeState. The
// static driver computes the same structures from a parsed document, so the
// analyzer sees identical candidates regardless of the backend.
//
// # Writing
//
// Writes always follow the same steps:
//
//  1. Read the element state (missing elements fail with selector-not-found)
//  2. Check it is interactable (disabled, read-only, and unrendered elements
//     fail with not-interactable)
//  3. Plan the write: fill text, pick a select option, or set a toggle
//  4. Apply the plan with the driver's native API
//
// # Example Usage
//
//	drv, err := playwright.NewDriver(playwright.Options{Headless: true})
//	h, err := drv.Open(ctx, "https://example.com/contact")
//	candidates, err := drv.Probe(ctx, h)
//	err = drv.Write(ctx, h, "#email", "john@example.com")
package browser
