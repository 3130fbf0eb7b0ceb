// Package secret resolves environment and secret references in
// configuration values such as the snapshot backend's Redis password.
//
// Two forms are recognised:
//   - ${VAR} expands from the environment and fails if VAR is unset.
//     $$ emits a literal $.
//   - secretref:<provider>:<ref> resolves through a named Provider, either
//     as the whole value or inline (redis://:secretref:file:/run/pw@host).
//
// Built-in providers read environment variables ("env") and mounted secret
// files ("file").
package secret
