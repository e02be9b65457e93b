/*
Package store keeps trained markov chains in a SQLite database, so many named
models can live side by side in one file.

Each model is stored as its state size, its states in table order and, per
state, its successor tokens in recorded order. Both orders are kept through
explicit position columns, so a chain loaded back is identical to the one
saved, duplicates included. Token text is interned in a shared vocabulary
table.

The package does not import a SQLite driver; callers open the *sql.DB with
the driver of their choice and call SetupSchema once.
*/
package store
