// Package webhook serves the GitHub push-hook endpoint.
//
// Every repository configured in the registry gets a POST endpoint at
// /github-hook/{repoID}. A request is authenticated with the repository's
// shared secret before anything in the payload is trusted, then filtered on
// event type and branch, and finally handed to a TaskLauncher which runs the
// repository script in the background.
//
// # Security Model
//
//   - HMAC-SHA1 over the exact raw body, header format "sha1=<hex>"
//   - Signatures compared with crypto/subtle (constant time)
//   - Body size limited before verification (413 when exceeded)
//   - The expected digest is never logged or returned
//
// # Request Flow
//
//  1. Unknown repository id → 404 {"code":404,"error":"Repository not found"}
//  2. Missing X-Hub-Signature → 400
//  3. Body larger than MaxBodySize → 413
//  4. Signature mismatch → 401
//  5. X-GitHub-Event other than "push" → 200 "osef", body not parsed
//  6. Push body that is not valid JSON → 400
//  7. Branch filter rejects the ref → 200 "osef", logged as "hook skipped"
//  8. Otherwise the script is launched and 200 "ok" is returned
//
// The response never waits for the script; its outcome is only visible in
// the logs.
//
// # Other Routes
//
//   - GET /github-hook/version returns the build version as text/plain
//   - Anything else returns 404 {"code":404,"error":"Not Found"}
//
// # Example Usage
//
//	srv := webhook.New(webhook.Config{
//		Listen:      ":3000",
//		MaxBodySize: webhook.DefaultMaxBodySize,
//		Version:     version,
//	}, cfg.Registry(), runner, logger)
//	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
//		log.Fatal(err)
//	}
package webhook
