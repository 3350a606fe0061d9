// Package logging sets up the loader's structured logger.
//
// Records go to stdout and to a daily file <dir>/YYYYMMDD.log that is
// reopened when the date changes. An [ErrorCounter] sits in front of the
// handler so a run can tell whether anything was logged at ERROR level and
// exit non-zero.
package logging
