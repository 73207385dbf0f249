// Copyright (c) 2024 The Bioarchive Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package external

import (
	"fmt"
)

// Error taxonomy for external service calls. Client errors carry the
// upstream status and surface as 502 (the upstream rejected our data);
// server errors surface as 502 after retries are exhausted; timeouts
// surface as 504.

// indicates a 4xx response from an external service (not retried)
type ClientError struct {
	Service string
	Status  int
	Message string
}

func (e ClientError) Error() string {
	return fmt.Sprintf("The %s service rejected the request (%d): %s",
		e.Service, e.Status, e.Message)
}

// indicates a 5xx response from an external service after retries
type ServerError struct {
	Service string
	Status  int
	Message string
}

func (e ServerError) Error() string {
	return fmt.Sprintf("The %s service failed (%d): %s",
		e.Service, e.Status, e.Message)
}

// indicates that an external call did not complete within its deadline
type TimeoutError struct {
	Service string
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("The %s service did not respond in time", e.Service)
}

// indicates that a service's circuit breaker is open
type UnavailableError struct {
	Service string
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("The %s service is currently unavailable", e.Service)
}
