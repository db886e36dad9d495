// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package geocode resolves restaurant addresses to coordinates.

# Client

Client wraps a Google-compatible endpoint (.../geocode/json?address=...&key=...)
and returns the first result. Every failure is an *Error carrying a stable code
such as GEOCODE_QUOTA_EXCEEDED or GEOCODE_ZERO_RESULTS.

# Batches

Runner.Run loads candidates from a Store, feeds them through an unbuffered
task channel to a fixed number of workers, and collects one outcome per item:

  - skipped: coordinates younger than MaxAgeDays and Force is false
  - processed: geocoded and upserted
  - failed: an ItemError with the failure code

Each worker sleeps DelayMs after every API call. There are no retries and no
job state survives the call.
*/
package geocode
