// Package services carries cross-cutting helpers shared by workflow
// components: sentinel error markers with contextual wrapping, and context
// annotation for track, job, and correlation identifiers.
package services
