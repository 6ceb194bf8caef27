package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration loaded from YAML, with environment
// overrides for the pieces that typically vary per deployment (secrets,
// connection strings).
type Config struct {
	Database DatabaseConfig     `yaml:"database"`
	NATS     NATSConfig         `yaml:"nats"`
	MinIO    MinIOConfig        `yaml:"minio"`
	Model    ModelConfig        `yaml:"model"`
	Tracking TrackingConfig     `yaml:"tracking"`
	Motion   MotionConfig       `yaml:"motion"`
	Faces    FaceConfig         `yaml:"face_recognition"`
	Logging  LoggingConfig      `yaml:"logging"`
	Objects  ObjectFilterConfig `yaml:"object_filters"`
	Cameras  []CameraConfig     `yaml:"cameras"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ModelConfig describes the detector models shared by every camera.
type ModelConfig struct {
	ObjectWidth          int      `yaml:"object_width"`
	ObjectHeight         int      `yaml:"object_height"`
	FaceDetectionWidth   int      `yaml:"face_detection_width"`
	FaceDetectionHeight  int      `yaml:"face_detection_height"`
	Labels               []string `yaml:"labels"`
	IntraOpThreads       int      `yaml:"intra_op_threads"`
	InterOpThreads       int      `yaml:"inter_op_threads"`
	ObjectModelPath      string   `yaml:"object_model_path"`
	FaceModelPath        string   `yaml:"face_model_path"`
	ModelsDir            string   `yaml:"models_dir"`
}

type TrackingConfig struct {
	MaxDisappeared        int           `yaml:"max_disappeared"`
	StationaryThreshold   int           `yaml:"stationary_threshold"`
	StationaryInterval    int           `yaml:"stationary_interval"`
	DetectionThreshold    float64       `yaml:"detection_threshold"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	MinIoU                float64       `yaml:"min_iou"`
}

// ObjectFilterConfig is the step-4.5.1 object filter applied per detection
// before it reaches NMS. MinRatio/MaxRatio bound width/height.
type ObjectFilterConfig struct {
	MinArea  int     `yaml:"min_area"`
	MaxArea  int     `yaml:"max_area"`
	MinScore float64 `yaml:"min_score"`
	MinRatio float64 `yaml:"min_ratio"`
	MaxRatio float64 `yaml:"max_ratio"`
}

type MotionConfig struct {
	ContourArea          int  `yaml:"contour_area"`
	Threshold            int  `yaml:"threshold"`
	ImproveContrast      bool `yaml:"improve_contrast_enabled"`
}

// FaceConfig is the face-recognition configuration shared by every camera;
// CameraConfig has no per-camera override of these fields.
type FaceConfig struct {
	Model                     string        `yaml:"model"` // "LBPH","Fisher","Eigen","DOODS_EU","DOODS_COS"
	MinScore                  float64       `yaml:"min_score"`
	MinArea                   int           `yaml:"min_area"`
	MaxArea                   int           `yaml:"max_area"`
	WidthCrop                 float64       `yaml:"width_crop"`
	HeightCrop                float64       `yaml:"height_crop"`
	MaxScoreConversion        float64       `yaml:"max_score_conversion"`
	RecognitionPauseOnTimeout time.Duration `yaml:"recognition_pause_on_timeout"`
	ModelPath                 string        `yaml:"model_path"`
	LabelMapPath              string        `yaml:"label_map_path"`
	FacesDir                  string        `yaml:"faces_dir"`
	TrainingCamera            string        `yaml:"training_camera"`
	TrainingUnknownOnly       bool          `yaml:"training_unknown_only"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CameraConfig is one entry under cameras:.
type CameraConfig struct {
	Name              string   `yaml:"name"`
	URL               string   `yaml:"url"`
	FPS               int      `yaml:"fps"`
	Width             int      `yaml:"width"`
	Height            int      `yaml:"height"`
	ObjectsToTrack    []string `yaml:"objects_to_track"`
	// FaceRecognitionArea is "regions" (detect faces inside an
	// object-detection region that contains a person) or "tracked" (a
	// dedicated region per tracked person); empty defaults to "regions".
	FaceRecognitionArea string        `yaml:"face_recognition_area"`
	RecorderStaleAfter  time.Duration `yaml:"recorder_stale_after"`
}

// Load reads config from YAML and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Model.ObjectWidth == 0 {
		cfg.Model.ObjectWidth = 320
	}
	if cfg.Model.ObjectHeight == 0 {
		cfg.Model.ObjectHeight = 320
	}
	if cfg.Model.FaceDetectionWidth == 0 {
		cfg.Model.FaceDetectionWidth = 160
	}
	if cfg.Model.FaceDetectionHeight == 0 {
		cfg.Model.FaceDetectionHeight = 160
	}
	if cfg.Tracking.MaxDisappeared == 0 {
		cfg.Tracking.MaxDisappeared = 10
	}
	if cfg.Tracking.StationaryThreshold == 0 {
		cfg.Tracking.StationaryThreshold = 50
	}
	if cfg.Tracking.StationaryInterval == 0 {
		cfg.Tracking.StationaryInterval = 50
	}
	if cfg.Tracking.DetectionThreshold == 0 {
		cfg.Tracking.DetectionThreshold = 0.5
	}
	if cfg.Tracking.RequestTimeout == 0 {
		cfg.Tracking.RequestTimeout = 5 * time.Second
	}
	if cfg.Tracking.MinIoU == 0 {
		cfg.Tracking.MinIoU = 0.3
	}
	if cfg.Objects.MaxArea == 0 {
		cfg.Objects.MaxArea = 1 << 30
	}
	if cfg.Objects.MinScore == 0 {
		cfg.Objects.MinScore = 0.5
	}
	if cfg.Objects.MinRatio == 0 {
		cfg.Objects.MinRatio = 0
	}
	if cfg.Objects.MaxRatio == 0 {
		cfg.Objects.MaxRatio = 1 << 10
	}
	if cfg.Motion.ContourArea == 0 {
		cfg.Motion.ContourArea = 30
	}
	if cfg.Motion.Threshold == 0 {
		cfg.Motion.Threshold = 25
	}
	if cfg.Faces.MinScore == 0 {
		cfg.Faces.MinScore = 0.6
	}
	if cfg.Faces.WidthCrop == 0 {
		cfg.Faces.WidthCrop = 0.65
	}
	if cfg.Faces.HeightCrop == 0 {
		cfg.Faces.HeightCrop = 0.75
	}
	if cfg.Faces.MaxScoreConversion == 0 {
		cfg.Faces.MaxScoreConversion = 100
	}
	if cfg.Faces.RecognitionPauseOnTimeout == 0 {
		cfg.Faces.RecognitionPauseOnTimeout = 1 * time.Second
	}
	if cfg.Faces.FacesDir == "" {
		cfg.Faces.FacesDir = "/data/faces"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	for i := range cfg.Cameras {
		if cfg.Cameras[i].FPS == 0 {
			cfg.Cameras[i].FPS = 5
		}
		if cfg.Cameras[i].RecorderStaleAfter == 0 {
			cfg.Cameras[i].RecorderStaleAfter = 120 * time.Second
		}
		if cfg.Cameras[i].FaceRecognitionArea == "" {
			cfg.Cameras[i].FaceRecognitionArea = "regions"
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CV_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CV_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("CV_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("CV_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("CV_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CV_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CV_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("CV_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("CV_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("CV_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("CV_MODELS_DIR"); v != "" {
		cfg.Model.ModelsDir = v
	}
	if v := os.Getenv("CV_FACE_MODEL"); v != "" {
		cfg.Faces.Model = v
	}
}

// Camera looks up a camera by name.
func (c *Config) Camera(name string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return CameraConfig{}, false
}
