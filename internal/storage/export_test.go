package storage

// MapError exposes mapError to tests.
var MapError = mapError
