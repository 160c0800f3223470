// Package artifacts publishes trained model directories to object storage.
//
// OpenStore turns the object_storage config section into a ready
// objectstore.Client (driver selected, bucket ensured). Publisher lays models
// out as <prefix>/models/<model_name>/<model_id>/...
package artifacts
