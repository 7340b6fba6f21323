package registry

const instancesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["instances"],
  "properties": {
    "instances": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "kind"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "kind": {"type": "string", "enum": ["relational", "document"]},
          "host": {"type": "string"},
          "port": {"type": "integer", "minimum": 1, "maximum": 65535},
          "credential_ref": {"type": "string"},
          "connection_string": {"type": "string"},
          "ssl_mode": {"type": "string", "enum": ["disable", "require", "verify-ca", "verify-full"]},
          "auth_source": {"type": "string"},
          "description": {"type": "string"}
        },
        "anyOf": [
          {"required": ["host"]},
          {"required": ["connection_string"]}
        ]
      }
    }
  }
}`
