// Package restyle adds author-defined classes and a custom stylesheet to HTML
// documents whose hostname is on an allow-list, and keeps them applied while
// the document and the configuration change.
//
// A Page bundles a hostname, a Document and a Loop. The Controller reads the
// configuration from a ConfigStore, decides with Determine whether the page is
// admitted and then drives the StyleApplier, the CSSInjector and the
// MutationWatcher. Nothing is ever removed: classes and CSS are only added or
// replaced.
package restyle
