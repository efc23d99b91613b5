// Package activation implements client-side license activation against
// the BeatConnect licensing API.
//
// # Architecture Overview
//
// The package is built from four parts:
//
//   - Engine: the activation state machine owned by the caller
//   - Transport: authenticated HTTP calls to the licensing API
//   - Store: local persistence of activation state
//   - Metrics: optional Prometheus instrumentation
//
// Machine fingerprinting lives in the sibling machineid package.
//
// # Ownership
//
// An Engine is NOT a singleton. A plugin host may load several instances
// or versions of the same plugin into one process, so each plugin
// processor must own its own Engine with a lifetime tied to the
// processor:
//
//	eng, err := activation.New(activation.Config{
//	    APIBaseURL: "https://xxx.example.com/functions/v1/plugin-activation",
//	    PluginID:   "your-project-uuid",
//	    APIKey:     "your-publishable-key",
//	})
//	if err != nil { ... }
//	defer eng.Close()
//
//	if !eng.IsActivated() {
//	    status := eng.Activate(ctx, userEnteredCode)
//	    if status == activation.StatusValid {
//	        // activated and persisted
//	    }
//	}
//
// # Status Taxonomy
//
// Every fallible operation returns a Status value from a closed set; raw
// transport or decoding errors never cross the package boundary. Network
// failures map to StatusNetworkError, malformed server responses to
// StatusServerError, and server-reported failures are classified from
// the error text (see Transport).
//
// # Threading
//
// Synchronous methods block on network I/O and must never run on a
// real-time audio thread. ActivateAsync and ValidateAsync run the
// operation on a small per-engine executor and deliver the status via
// callback. Overlapping calls on one engine are individually
// thread-safe but have no call-level ordering; callers needing strict
// sequencing must serialize themselves.
package activation
