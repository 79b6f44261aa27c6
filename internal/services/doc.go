// Package services implements the HTTP client for the analysis backend's REST surface.
//
// The live session does not use REST; these endpoints back the bench harness and the raw `api` commands.
//
// # Endpoints
//
//   - GET / : health greeting
//   - POST /api/v1/transcribe/process {url, model} : transcription record with its id
//   - POST /api/v1/sentiment/analyze/{id} : {"message": SentimentDocument}
//
// # Authentication
//
// [NewAuthorizedClient] wraps an [http.Client] with a static [oauth2.TokenSource] built from the session credential,
// so every request carries an Authorization: Bearer header.
//
// # Error Handling
//
// Typed errors from the shared package:
//   - [shared.ErrAuth] : 401 or 403
//   - [shared.ErrServiceUnavailable] : 502, 503 or an unreachable backend on health checks
//   - [shared.ErrAnalysisNotFound] : unknown transcription id
//   - [shared.ErrAPIRequest] : any other failure, with FastAPI's detail message when present
package services
