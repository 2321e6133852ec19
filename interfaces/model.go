package interfaces

// Object is a loosely typed JSON document.
type Object map[string]interface{}
