// Package corpus turns raw text into the sentences a markov.Chain trains on.
//
// It cleans Project Gutenberg style books (licence banners, tables of
// contents, illustration notes and chapter titles) and splits text into
// sentences, treating blank lines as paragraph breaks.
package corpus
