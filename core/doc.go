// Package core contains the shared data model of slotflow: sessions and their
// conversation history, durable workflow state, response envelopes, function
// call/response types and the execution contexts handed to tools and the
// reasoning loop. Higher level packages (workflow, slot, reason, tool) depend
// on core; core depends only on logging.
package core
