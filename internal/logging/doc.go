// Package logging wires log/slog with stemd's console and JSON handlers.
//
// The console handler renders compact key=value lines with the component
// attribute promoted into the message prefix; the JSON handler normalizes
// timestamp and level keys for log shipping. Helpers expose typed attribute
// constructors, standardized field keys, and context-derived loggers so every
// component logs track and job identifiers the same way.
package logging
