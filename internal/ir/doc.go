// Package ir provides the value, fact and topology types shared by every
// other nexus package.
//
// ir imports nothing internal. This keeps it the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Payloads are tagged variants (Value), never bare interface{} maps
//   - Facts are values; helpers return copies and never mutate the receiver
//   - Canonical JSON (sorted keys, NFC strings, typed floats) backs every
//     digest and every stored payload
//   - All JSON tags use snake_case
package ir
