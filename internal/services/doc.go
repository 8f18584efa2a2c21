// Package services holds the error taxonomy and context helpers shared by the
// external service clients under services/ and the pipeline stages that call
// them.
package services
