package node

// PropertyType is the form control type the host renders for a property.
type PropertyType string

const (
	PropertyTypeString          PropertyType = "string"
	PropertyTypeJSON            PropertyType = "json"
	PropertyTypeFixedCollection PropertyType = "fixedCollection"
)

// ConnectionMain is the main data connection of a node.
const ConnectionMain = "main"

// Description is the declarative metadata of a node. It carries no behavior.
type Description struct {
	DisplayName  string            `json:"displayName"`
	Name         string            `json:"name"`
	Group        []string          `json:"group"`
	Version      int               `json:"version"`
	Description  string            `json:"description"`
	Defaults     map[string]string `json:"defaults"`
	Inputs       []string          `json:"inputs"`
	Outputs      []string          `json:"outputs"`
	UsableAsTool bool              `json:"usableAsTool"`
	Properties   []Property        `json:"properties"`
}

// Property describes one configurable field of a node.
type Property struct {
	DisplayName      string           `json:"displayName"`
	Name             string           `json:"name"`
	Type             PropertyType     `json:"type"`
	Default          interface{}      `json:"default"`
	Description      string           `json:"description,omitempty"`
	Placeholder      string           `json:"placeholder,omitempty"`
	Required         bool             `json:"required,omitempty"`
	NoDataExpression bool             `json:"noDataExpression,omitempty"`
	MultipleValues   bool             `json:"multipleValues,omitempty"`
	Options          []PropertyOption `json:"options,omitempty"`
}

// PropertyOption is a named group of values inside a fixed collection.
type PropertyOption struct {
	Name        string     `json:"name"`
	DisplayName string     `json:"displayName"`
	Values      []Property `json:"values"`
}

// Parameter names shared by the validation nodes.
const (
	ParamValidations      = "validations"
	ParamValidation       = "validation"
	ParamFieldValue       = "fieldValue"
	ParamValidationSchema = "validationSchema"
)

// ValidationsProperty builds the "validations" fixed collection holding the
// given subject and schema fields.
func ValidationsProperty(fieldValue, validationSchema Property) Property {
	return Property{
		DisplayName:    "Validations",
		Name:           ParamValidations,
		Placeholder:    "Add Validation Rule",
		Type:           PropertyTypeFixedCollection,
		MultipleValues: true,
		Default:        map[string]interface{}{},
		Options: []PropertyOption{
			{
				Name:        ParamValidation,
				DisplayName: "Validation",
				Values:      []Property{fieldValue, validationSchema},
			},
		},
	}
}

// FieldNames returns the names of every value field declared inside the
// description's fixed collections.
func (d Description) FieldNames() []string {
	var names []string
	for _, p := range d.Properties {
		for _, opt := range p.Options {
			for _, v := range opt.Values {
				names = append(names, v.Name)
			}
		}
	}
	return names
}
