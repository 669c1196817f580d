// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness poller used by the event loop: an epoll
// instance paired with an eventfd so shutdown can interrupt a blocked wait.
package reactor
