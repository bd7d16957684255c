package assets

type Loader interface {
	Load(path string, params interface{}) (*Resource, error)
	Unload(*Resource) error
}
