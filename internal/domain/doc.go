// Package domain holds the types shared by the ingestion, retrieval and chat
// layers: source kinds and their ranking, chunks, conversation turns and the
// error taxonomy used across the service.
package domain
