// Package artifact persists result pages as addressable blobs.
//
// Keys are chosen by the caller. Put returns a job.Locator whose URL is
// served by the HTTP read endpoint; reads require a signature produced by
// Signer, so locators can be handed to consumers with a bounded lifetime.
package artifact
