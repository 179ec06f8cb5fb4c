// Package async runs independent operations concurrently.
//
// [RunParallel] starts every task, waits for all of them and returns every
// failure joined together. Status probes use it so one slow or failing
// probe never hides the results of the others.
package async
